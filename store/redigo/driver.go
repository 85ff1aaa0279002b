package redigo_driver

import "github.com/flashmob/go-mime/store"
import redigo "github.com/gomodule/redigo/redis"

func init() {
	store.RedisDialer = func(network, address string, options ...store.RedisDialOption) (store.RedisConn, error) {
		return redigo.Dial(network, address)
	}
}

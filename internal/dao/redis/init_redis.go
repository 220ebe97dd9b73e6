package redis

import (
	"strconv"

	"edulead_chat_server/internal/config"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

var store AsyncKVStore

// Init connects to Redis and builds the global store instance.
func Init() {
	conf := config.GetConfig()
	addr := conf.RedisConfig.Host + ":" + strconv.Itoa(conf.RedisConfig.Port)

	redisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.RedisConfig.Password,
		DB:       conf.RedisConfig.Db,

		PoolSize:     50,
		MinIdleConns: 15,
	})

	store = NewRedisStore(redisClient, 15, 3000)
}

// GetStore returns the global AsyncKVStore for injection.
func GetStore() AsyncKVStore {
	return store
}

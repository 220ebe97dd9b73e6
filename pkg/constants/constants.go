package constants

import "time"

const (
	CHANNEL_SIZE = 100 // buffered channel size for connection send queues

	// Defaults for chatConfig values left unset.
	DEFAULT_PENDING_CAP       = 50
	DEFAULT_PENDING_TTL       = 72 * time.Hour
	DEFAULT_IDLE_TIMEOUT      = 5 * time.Minute
	DEFAULT_REAP_INTERVAL     = time.Minute
	DEFAULT_TAB_GRACE         = 3 * time.Second
	DEFAULT_DEDUP_WINDOW      = 30 * time.Second
	DEFAULT_BUSINESS_OPEN_HR  = 9
	DEFAULT_BUSINESS_CLOSE_HR = 24

	REDIS_TIMEOUT = 1 // cache TTL for chat history entries (minutes)
)

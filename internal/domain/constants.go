package domain

import "time"

// Compiled default limits for the registration flow. Each of these can be
// overridden via configuration; the config package falls back to these values.
const (
	// Session lifecycle
	DefaultSessionTTL      = 10 * time.Minute // How long a registration session stays alive
	SessionSweepDivisor    = 10               // Sweeper interval = TTL / divisor
	MinSessionSweepPeriod  = 1 * time.Second  // Lower bound on the sweeper interval
	SessionIDLength        = 16               // Raw session token length in bytes
	VerificationCodeLength = 6                // Decimal digits in a verification code

	// Verification checks
	DefaultMaxCheckAttempts = 3               // Failed checks before lockout
	DefaultCheckLockout     = 5 * time.Minute // Lockout after attempts are exhausted
	DefaultMinCheckDelay    = 2 * time.Second // Minimum spacing between checks

	// Session creation bucket
	DefaultSessionCreationCapacity = 3                // Leaky bucket capacity
	DefaultSessionCreationRefill   = 1.0 / 60.0       // Tokens regenerated per second
	DefaultSessionCreationMinDelay = 5 * time.Second  // Minimum spacing between creations
	DefaultDelayAfterFirstSMS      = 60 * time.Second // Voice gate after the first SMS

	// Voice sends
	DefaultMaxVoiceAttempts = 3 // Outbound voice calls per session

	// Rate limiter housekeeping
	DefaultBucketRetainIdle = 30 * time.Minute // Idle buckets older than this are dropped
	BucketSweepInterval     = 1 * time.Minute  // How often idle buckets are swept

	// Timeout contracts
	DefaultRequestTimeout = 30 * time.Second // Upper bound on a single RPC
	DirectoryTimeout      = 10 * time.Second // Max time for a directory round trip
	TransportTimeout      = 10 * time.Second // Max time for a code transport call
	DynamoDBTimeout       = 5 * time.Second  // Max time for DynamoDB operations
	RedisTimeout          = 2 * time.Second  // Max time for Redis operations

	// Graceful shutdown
	ShutdownDrainDelay  = 2 * time.Second  // Let load balancers see the 503 first
	ShutdownHTTPTimeout = 10 * time.Second // Max time to drain the health listener
	ShutdownRPCTimeout  = 10 * time.Second // Max time to drain in-flight RPCs
	ShutdownOTELTimeout = 5 * time.Second  // Max time to flush telemetry
)

// DefaultSMSDelays is the default delay schedule for repeated SMS sends:
// the n-th send must wait at least DefaultSMSDelays[min(n, len-1)] after
// the previous one.
var DefaultSMSDelays = []time.Duration{0, 60 * time.Second, 120 * time.Second}

// DefaultVoiceDelays is the default delay schedule for repeated voice calls.
var DefaultVoiceDelays = []time.Duration{0, 300 * time.Second}

// CodeChannel identifies the out-of-band delivery channel for a
// verification code. Wire values are fixed: SMS=0, voice=1.
type CodeChannel int32

const (
	ChannelSMS   CodeChannel = 0
	ChannelVoice CodeChannel = 1
)

// IsValidChannel checks whether a wire transport value maps to a known channel.
func IsValidChannel(c CodeChannel) bool {
	return c == ChannelSMS || c == ChannelVoice
}

// String returns the lowercase channel name for logging and metrics labels.
func (c CodeChannel) String() string {
	switch c {
	case ChannelSMS:
		return "sms"
	case ChannelVoice:
		return "voice"
	default:
		return "unknown"
	}
}

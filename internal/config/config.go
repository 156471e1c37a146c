// Package config loads the environment-driven settings for the Brain and
// Worker processes, the way internal/app/config.go loads settings for the
// monolith: one LoadX function per process, reading through envutil with
// the same defaults spec.md §6.5 names.
package config

import (
	"time"

	"github.com/weitingchou/jagereye/internal/platform/envutil"
)

// BrainConfig holds every option a Brain instance reads from its
// environment.
type BrainConfig struct {
	Typename         string
	MQHost           string
	MemDBHost        string
	EventDBHost      string
	EventDBPort      string
	EventDBUser      string
	EventDBPassword  string
	EventDBName      string
	ChPublic         string
	ExamineInterval  time.Duration
	ExamineThreshold time.Duration
	MetricsAddr      string
	LogMode          string
}

// LoadBrainConfig reads a BrainConfig from the environment. TYPENAME has
// no default: every Brain instance serves exactly one analyzer type and
// must be told which.
func LoadBrainConfig() BrainConfig {
	return BrainConfig{
		Typename:         envutil.String("TYPENAME", ""),
		MQHost:           envutil.String("MQ_HOST", "localhost:6379"),
		MemDBHost:        envutil.String("MEM_DB_HOST", "localhost:6379"),
		EventDBHost:      envutil.String("EVENT_DB_HOST", "localhost"),
		EventDBPort:      envutil.String("EVENT_DB_PORT", "5432"),
		EventDBUser:      envutil.String("EVENT_DB_USER", "jagereye"),
		EventDBPassword:  envutil.String("EVENT_DB_PASSWORD", ""),
		EventDBName:      envutil.String("EVENT_DB_NAME", "jagereye"),
		ChPublic:         envutil.String("CH_PUBLIC", "ch_brain"),
		ExamineInterval:  envutil.Seconds("EXAMINE_INTERVAL", 6),
		ExamineThreshold: envutil.Seconds("EXAMINE_THRESHOLD", 10),
		MetricsAddr:      envutil.String("METRICS_ADDR", ""),
		LogMode:          envutil.String("LOG_MODE", "development"),
	}
}

// WorkerConfig holds every option a Worker process reads from its
// environment.
type WorkerConfig struct {
	Name              string
	WorkerID          string
	SharedDir         string
	MQHost            string
	MemDBHost         string
	HeartbeatInterval time.Duration
	PipelineName      string
	MetricsAddr       string
	LogMode           string
}

// LoadWorkerConfig reads a WorkerConfig from the environment. WORKER_ID
// has no default: it is minted by the Resource Manager and passed down to
// the worker process it spawns.
func LoadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Name:              envutil.String("NAME", ""),
		WorkerID:          envutil.String("WORKER_ID", ""),
		SharedDir:         envutil.String("SHARED_DIR", "/tmp/jagereye"),
		MQHost:            envutil.String("MQ_HOST", "localhost:6379"),
		MemDBHost:         envutil.String("MEM_DB_HOST", "localhost:6379"),
		HeartbeatInterval: envutil.Seconds("HEARTBEAT_INTERVAL", 2),
		PipelineName:      envutil.String("PIPELINE_NAME", ""),
		MetricsAddr:       envutil.String("METRICS_ADDR", ""),
		LogMode:           envutil.String("LOG_MODE", "development"),
	}
}

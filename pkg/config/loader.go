package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.RWMutex
	loaded = make(map[string]any)

	dotenvOnce sync.Once
)

// Load populates the configuration struct from environment variables using
// `env:` tags. Each distinct config type is parsed once per process and
// cached; later calls return the cached copy so every component sees the
// same values.
//
//	type WorkerConfig struct {
//		Interval time.Duration `env:"SYNC_SWEEP_INTERVAL" envDefault:"1m"`
//		Batch    int           `env:"SYNC_SWEEP_BATCH" envDefault:"50"`
//	}
//
//	var cfg WorkerConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// The .env file is optional; absence is not an error.
		_ = godotenv.Load()
	})

	key := typeName[T]()

	mu.RLock()
	cached, ok := loaded[key]
	mu.RUnlock()
	if ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if cached, ok := loaded[key]; ok {
		// Another goroutine parsed concurrently; keep the first result.
		*v = cached.(T)
		return nil
	}
	loaded[key] = *v
	return nil
}

// MustLoad works like Load but panics on failure. Intended for
// configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func typeName[T any]() string {
	t := reflect.TypeOf(*new(T))
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}

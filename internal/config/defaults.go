package config

import "medibot/internal/session"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:3000/api",
			TimeoutSeconds: 10,
			Retries:        2,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "~/.medibot/medibot.db",
		},
		Session: SessionConfig{
			Driver:        "memory",
			TTLMinutes:    30,
			SweepSchedule: session.DefaultSweepSchedule,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Dispatch: DispatchConfig{
			Lanes:      4,
			LaneBuffer: 32,
		},
		Search: SearchConfig{
			Limit: 10,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Sender: "9999999999",
			},
		},
	}
}

package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/jukebot/internal/domain/song"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxSongs   int `yaml:"max_songs" mapstructure:"max_songs" default:"200" validate:"gte=1"`
	MaxPerUser int `yaml:"max_per_user" mapstructure:"max_per_user" validate:"gte=0"` // 0 means no per-user limit
}

// QueueLimitFilter bounds the queue length and the songs one member may have waiting.
type QueueLimitFilter struct {
	config *QueueLimitConfig
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Limits the queue length and the number of songs each member may have waiting"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full", "user_queue_limit"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) AppliesTo(source Source) bool {
	return true
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, q QueueView) Result {
	if f.config == nil {
		return Accept()
	}

	songs := q.Songs()
	if len(songs) >= f.config.MaxSongs {
		return Reject("queue_full")
	}

	if f.config.MaxPerUser > 0 {
		// The playing song no longer counts as waiting
		waiting := lo.CountBy(lo.Drop(songs, 1), func(s *song.Song) bool {
			return s.Requester.ID == req.Requester.ID
		})
		if waiting >= f.config.MaxPerUser {
			return Reject("user_queue_limit")
		}
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}

package filter

import (
	"context"
	"slices"
)

// BlockedUserConfig represents the configuration for BlockedUserFilter.
type BlockedUserConfig struct {
	UserIDs []string `yaml:"user_ids" mapstructure:"user_ids" validate:"dive,required"`
}

// BlockedUserFilter rejects requests from blocked members.
type BlockedUserFilter struct {
	userIDs []string
}

func (f *BlockedUserFilter) Name() string {
	return "blocked_user_filter"
}

func (f *BlockedUserFilter) Description() string {
	return "Rejects requests from members listed in user_ids"
}

func (f *BlockedUserFilter) ReturnCodes() []string {
	return []string{"blocked"}
}

func (f *BlockedUserFilter) ValidateConfig(settings map[string]any) error {
	var config BlockedUserConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.userIDs = config.UserIDs
	return nil
}

func (f *BlockedUserFilter) AppliesTo(source Source) bool {
	return true
}

func (f *BlockedUserFilter) Check(ctx context.Context, req Request, q QueueView) Result {
	if slices.Contains(f.userIDs, req.Requester.ID) {
		return Reject("blocked")
	}
	return Accept()
}

func init() {
	Register("blocked_user_filter", func() Filter {
		return &BlockedUserFilter{}
	})
}

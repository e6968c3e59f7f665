package mocks

import "github.com/krisalay/sharded-counter/shard"

var (
	_ shard.Store       = (*MockStore)(nil)
	_ shard.ConfigStore = (*MockConfigStore)(nil)
)

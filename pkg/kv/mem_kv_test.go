package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/tabletop-garden-go/pkg/util/merr"
)

type MemoryKVSuite struct {
	suite.Suite

	kv *MemoryKV
}

func (s *MemoryKVSuite) SetupTest() {
	s.kv = NewMemoryKV()
}

func (s *MemoryKVSuite) TestLoadNotFound() {
	_, err := s.kv.Load(context.Background(), "network/secret")
	s.Error(err)
	s.ErrorIs(err, merr.ErrIoKeyNotFound)
}

func (s *MemoryKVSuite) TestSaveLoad() {
	ctx := context.Background()

	err := s.kv.Save(ctx, "network/secret", "geheim")
	s.NoError(err)

	value, err := s.kv.Load(ctx, "network/secret")
	s.NoError(err)
	s.Equal("geheim", value)

	err = s.kv.Save(ctx, "network/secret", "other")
	s.NoError(err)

	value, err = s.kv.Load(ctx, "network/secret")
	s.NoError(err)
	s.Equal("other", value)
}

func (s *MemoryKVSuite) TestRemove() {
	ctx := context.Background()

	s.NoError(s.kv.Save(ctx, "k", "v"))
	s.NoError(s.kv.Remove(ctx, "k"))

	_, err := s.kv.Load(ctx, "k")
	s.ErrorIs(err, merr.ErrIoKeyNotFound)

	// 删除不存在的 key 不报错。
	s.NoError(s.kv.Remove(ctx, "missing"))
}

func TestMemoryKV(t *testing.T) {
	suite.Run(t, new(MemoryKVSuite))
}

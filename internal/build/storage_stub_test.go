package build

import (
	"context"
	"errors"
	"os"
	"sync"
)

var _ Storage = (*StubStorage)(nil)

type StubStorage struct {
	UploadErr   error
	BlockUpload bool // wait for the context to end

	mu      sync.Mutex
	Objects map[string][]byte
}

func (s *StubStorage) UploadArchive(ctx context.Context, params *StorageUploadArchiveParams) error {
	if s.BlockUpload {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.UploadErr != nil {
		return s.UploadErr
	}
	b, err := os.ReadFile(params.Path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = make(map[string][]byte)
	}
	s.Objects[params.Key] = b
	return nil
}

func (s *StubStorage) OpenArchive(_ context.Context, params *StorageOpenArchiveParams) (*StorageOpenArchiveResult, error) {
	return nil, errors.ErrUnsupported
}

var _ Broker = (*SpyBroker)(nil)

type SpyBroker struct {
	Block bool // wait for the context to end

	mu     sync.Mutex
	Events []*FinishedEvent
}

func (b *SpyBroker) PublishFinished(ctx context.Context, event *FinishedEvent) error {
	if b.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
	return nil
}

package build

import (
	"context"
	"sync"
)

const (
	callCreateBuild  = "CreateBuild"
	callGetBuild     = "GetBuild"
	callExpireBuilds = "ExpireBuilds"
)

var _ Database = (*SpyDatabase)(nil)

type SpyDatabase struct {
	CreateBuildErr error

	mu      sync.Mutex
	Calls   []string
	Records []*Record
}

func (d *SpyDatabase) CreateBuild(_ context.Context, params *DatabaseCreateBuildParams) (*Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, callCreateBuild)
	if d.CreateBuildErr != nil {
		return nil, d.CreateBuildErr
	}
	r := &Record{
		ID:         params.ID,
		RequestID:  params.RequestID,
		Format:     params.Format,
		Status:     params.Status,
		Reason:     params.Reason,
		PackMethod: params.PackMethod,
		WidthCm:    params.WidthCm,
		HeightCm:   params.HeightCm,
		BytesIn:    params.BytesIn,
		BytesOut:   params.BytesOut,
		Mirrored:   params.Mirrored,
		CreatedAt:  params.CreatedAt,
		ExpiresAt:  params.ExpiresAt,
	}
	d.Records = append(d.Records, r)
	return r, nil
}

func (d *SpyDatabase) GetBuild(_ context.Context, params *DatabaseGetBuildParams) (*Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, callGetBuild)
	for _, r := range d.Records {
		if r.ID == params.ID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (d *SpyDatabase) ExpireBuilds(_ context.Context, params *DatabaseExpireBuildsParams) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, callExpireBuilds)
	n := 0
	for _, r := range d.Records {
		if r.Status == StatusSucceeded && !r.ExpiresAt.After(params.Now) {
			r.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-lease-system/internal/model"
)

type recordingMirror struct {
	mu     sync.Mutex
	events []*model.ArtifactDownloadAuditEvent
}

func (m *recordingMirror) Mirror(event *model.ArtifactDownloadAuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func TestAuditStoreAppendAndList(t *testing.T) {
	f := newFixture(t)
	mirror := &recordingMirror{}
	store := NewAuditStore(f.db, mirror)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		result := model.AuditResultAllowed
		if i%5 == 0 {
			result = model.AuditResultDenied
		}
		require.NoError(t, store.Append(ctx, &model.ArtifactDownloadAuditEvent{
			TenantID:  testTenant,
			LeaseID:   fmt.Sprintf("lease-%d", i%2),
			EventType: model.AuditEventResolveSuccess,
			Result:    result,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Append(ctx, &model.ArtifactDownloadAuditEvent{
		TenantID: "t2", EventType: model.AuditEventResolveDenied, Result: model.AuditResultDenied,
	}))
	assert.Len(t, mirror.events, 26)

	events, total, err := store.ListAuditEvents(ctx, testTenant, AuditQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	assert.Len(t, events, 20)
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))

	events, _, err = store.ListAuditEvents(ctx, testTenant, AuditQuery{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, events, 5)

	events, total, err = store.ListAuditEvents(ctx, testTenant, AuditQuery{Result: model.AuditResultDenied, PageSize: 500})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, events, 5)

	_, total, err = store.ListAuditEvents(ctx, testTenant, AuditQuery{LeaseID: "lease-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 12, total)
}

func TestAuditSheetMirrorDisabled(t *testing.T) {
	mirror, err := NewAuditSheetMirror(false, "", "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, mirror)
	assert.NotPanics(t, func() {
		mirror.Mirror(&model.ArtifactDownloadAuditEvent{})
	})
}

func TestAuditSheetMirrorMissingCredentials(t *testing.T) {
	_, err := NewAuditSheetMirror(true, t.TempDir()+"/missing.json", "sheet", "audit", nil)
	assert.Error(t, err)
}

func TestAuditSheetRow(t *testing.T) {
	releaseID := uint(42)
	reason := "vm-uuid-mismatch"
	row := auditSheetRow(&model.ArtifactDownloadAuditEvent{
		TenantID:  testTenant,
		UserID:    testUser,
		LeaseID:   "lease-1",
		VmUuid:    testVm,
		Module:    testModule,
		Platform:  "windows-x64",
		Channel:   "stable",
		ReleaseID: &releaseID,
		EventType: model.AuditEventResolveDenied,
		Result:    model.AuditResultDenied,
		Reason:    &reason,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, []interface{}{
		"2026-03-01T08:00:00Z", testTenant, testUser, "lease-1", testVm, testModule,
		"windows-x64", "stable", "42", model.AuditEventResolveDenied, model.AuditResultDenied, reason,
	}, row)
}

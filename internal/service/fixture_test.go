package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-lease-system/internal/config"
	"license-lease-system/internal/database"
	"license-lease-system/internal/metrics"
	"license-lease-system/internal/model"
	"license-lease-system/internal/storage"
	"license-lease-system/internal/token"
)

const (
	testSecret = "service-test-secret"
	testTenant = "t1"
	testUser   = "u1"
	testVm     = "vm-aaaa1111"
	testModule = "winsible"
)

var testStart = time.Unix(1_700_000_000, 0)

// fixture 组装一整套服务，共用同一个可推进的时钟
type fixture struct {
	t   *testing.T
	db  *gorm.DB
	cfg *config.Config
	now time.Time

	codec        *token.Codec
	metrics      *metrics.Metrics
	vms          *VmRegistry
	issuer       *LeaseIssuer
	lifecycle    *LeaseLifecycleManager
	resolver     *LeaseResolver
	catalog      *ReleaseCatalog
	assignments  *ArtifactAssignmentResolver
	audit        *AuditStore
	storage      *storage.MemoryProvider
	orchestrator *ArtifactDownloadOrchestrator
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.LeaseSigningSecret = testSecret
	cfg.StorageProvider = config.StorageMemory
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{t: t, db: database.NewTestDB(t), cfg: cfg, now: testStart}
	clock := func() time.Time { return f.now }
	opts := []Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New()),
	}

	f.codec = token.NewCodec(cfg.LeaseSigningSecret, token.WithClock(clock))
	f.vms = NewVmRegistry(f.db, opts...)
	f.issuer = NewLeaseIssuer(f.db, cfg, f.codec, NewVmOwnershipGuard(f.vms, opts...), NewLicenseEntitlementGuard(f.db, opts...), opts...)
	f.lifecycle = NewLeaseLifecycleManager(f.db, opts...)
	f.resolver = NewLeaseResolver(f.db, f.codec, opts...)
	f.catalog = NewReleaseCatalog(f.db, opts...)
	f.assignments = NewArtifactAssignmentResolver(f.db, opts...)
	f.audit = NewAuditStore(f.db, nil, opts...)
	f.storage = storage.NewMemoryProvider("artifacts")
	f.storage.SetClock(clock)
	f.orchestrator = NewArtifactDownloadOrchestrator(cfg, f.resolver, f.assignments, f.catalog, f.storage, f.audit, opts...)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) create(v any) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(v).Error)
}

// seedTrustChain 登记 VM、租户级订阅许可证和模块授权
func (f *fixture) seedTrustChain(tenantID, userID, vmUuid string, modules string) {
	f.t.Helper()
	f.create(&model.VmRegistration{TenantID: tenantID, VmUuid: vmUuid, UserID: userID, Status: model.VmStatusActive})
	f.create(&model.License{
		TenantID:    tenantID,
		Type:        model.LicenseTypeSubscription,
		Status:      model.LicenseStatusActive,
		ExpiresAtMs: f.now.Add(30 * 24 * time.Hour).UnixMilli(),
	})
	f.create(&model.Entitlement{TenantID: tenantID, UserID: userID, Modules: datatypes.JSON(modules)})
}

func (f *fixture) issue(tenantID, userID, vmUuid, module string) *IssuedLease {
	f.t.Helper()
	lease, err := f.issuer.IssueExecutionLease(context.Background(), IssueLeaseInput{
		TenantID: tenantID,
		UserID:   userID,
		VmUuid:   vmUuid,
		AgentID:  "agent-1",
		RunnerID: "runner-1",
		Module:   module,
		Version:  "1.0.0",
	})
	require.NoError(f.t, err)
	return lease
}

func (f *fixture) auditEvents() []model.ArtifactDownloadAuditEvent {
	f.t.Helper()
	var events []model.ArtifactDownloadAuditEvent
	require.NoError(f.t, f.db.Order("id ASC").Find(&events).Error)
	return events
}

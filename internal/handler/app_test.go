package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-lease-system/internal/config"
	"license-lease-system/internal/database"
	"license-lease-system/internal/model"
	"license-lease-system/internal/service"
	"license-lease-system/internal/storage"
	"license-lease-system/internal/token"
	"license-lease-system/internal/util"
)

type testApp struct {
	t       *testing.T
	app     *fiber.App
	db      *gorm.DB
	cfg     *config.Config
	storage *storage.MemoryProvider
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   *errorBody      `json:"error"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.Default()
	cfg.LeaseSigningSecret = "handler-lease-secret"
	cfg.SessionSecret = "handler-session-secret"
	cfg.StorageProvider = config.StorageMemory

	db := database.NewTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []service.Option{service.WithLogger(logger)}

	codec := token.NewCodec(cfg.LeaseSigningSecret)
	vms := service.NewVmRegistry(db, opts...)
	resolver := service.NewLeaseResolver(db, codec, opts...)
	releases := service.NewReleaseCatalog(db, opts...)
	assignments := service.NewArtifactAssignmentResolver(db, opts...)
	audit := service.NewAuditStore(db, nil, opts...)
	mem := storage.NewMemoryProvider("artifacts")
	issuer := service.NewLeaseIssuer(db, cfg, codec,
		service.NewVmOwnershipGuard(vms, opts...), service.NewLicenseEntitlementGuard(db, opts...), opts...)

	h := New(Deps{
		Config:      cfg,
		DB:          db,
		Issuer:      issuer,
		Lifecycle:   service.NewLeaseLifecycleManager(db, opts...),
		Vms:         vms,
		Releases:    releases,
		Assignments: assignments,
		Downloads:   service.NewArtifactDownloadOrchestrator(cfg, resolver, assignments, releases, mem, audit, opts...),
		Audit:       audit,
		Logger:      logger,
	})
	return &testApp{t: t, app: NewApp(h), db: db, cfg: cfg, storage: mem}
}

// session 直接签发会话令牌
func (a *testApp) session(tenantID, username string, roles ...string) string {
	a.t.Helper()
	token, err := util.GenerateToken(a.cfg.SessionSecret, time.Hour, &model.User{
		TenantID: tenantID, Username: username, Roles: strings.Join(roles, ","),
	})
	require.NoError(a.t, err)
	return token
}

func (a *testApp) do(method, path, session string, body any) (int, envelope) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	require.NoError(a.t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *testApp) seedTrustChain(tenantID, userID, vmUuid string) {
	a.t.Helper()
	require.NoError(a.t, a.db.Create(&model.VmRegistration{TenantID: tenantID, VmUuid: vmUuid, UserID: userID, Status: model.VmStatusActive}).Error)
	require.NoError(a.t, a.db.Create(&model.License{TenantID: tenantID, UserID: userID, Type: model.LicenseTypePerpetual, Status: model.LicenseStatusActive}).Error)
	require.NoError(a.t, a.db.Create(&model.Entitlement{TenantID: tenantID, UserID: userID, Modules: datatypes.JSON(`["winsible"]`)}).Error)
}

func assertError(t *testing.T, status int, env envelope, wantStatus int, wantCode string) {
	t.Helper()
	assert.Equal(t, wantStatus, status)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, wantCode, env.Error.Code)
}

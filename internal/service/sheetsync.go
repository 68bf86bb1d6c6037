package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"license-lease-system/internal/model"
)

const sheetAppendTimeout = 15 * time.Second

// AuditSheetMirror 把下载审计事件追加到 Google 表格，供运营侧查看
type AuditSheetMirror struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

// NewAuditSheetMirror 未开启同步时返回 nil
func NewAuditSheetMirror(enableSync bool, credentialPath, spreadsheetID, sheetName string, logger *slog.Logger) (*AuditSheetMirror, error) {
	if !enableSync {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, fmt.Errorf("读取表格凭证失败: %w", err)
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, err
	}

	return &AuditSheetMirror{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// Mirror 异步追加一行，失败只记日志
func (m *AuditSheetMirror) Mirror(event *model.ArtifactDownloadAuditEvent) {
	if m == nil || event == nil {
		return
	}
	row := auditSheetRow(event)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sheetAppendTimeout)
		defer cancel()
		if err := m.append(ctx, row); err != nil {
			m.logger.Warn("audit sheet append failed", "event_id", event.ID, "error", err)
		}
	}()
}

func (m *AuditSheetMirror) append(ctx context.Context, row []interface{}) error {
	rangeData := fmt.Sprintf("%s!A:L", m.sheetName)
	_, err := m.service.Spreadsheets.Values.Append(m.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// auditSheetRow 列顺序：时间、租户、用户、租约、VM、模块、平台、通道、发布、事件、结果、原因
func auditSheetRow(event *model.ArtifactDownloadAuditEvent) []interface{} {
	releaseID := ""
	if event.ReleaseID != nil {
		releaseID = fmt.Sprint(*event.ReleaseID)
	}
	reason := ""
	if event.Reason != nil {
		reason = *event.Reason
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []interface{}{
		createdAt.UTC().Format(time.RFC3339),
		event.TenantID,
		event.UserID,
		event.LeaseID,
		event.VmUuid,
		event.Module,
		event.Platform,
		event.Channel,
		releaseID,
		event.EventType,
		event.Result,
		reason,
	}
}

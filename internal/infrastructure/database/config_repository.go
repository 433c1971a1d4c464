package database

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/compliance"
	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

const configColumns = `
	tenant_id, compliance_mode, timezone,
	allowed_start_hour, allowed_end_hour, allowed_days_of_week,
	require_express_consent, require_consent_for_automated, require_consent_for_marketing,
	consent_expiration_days,
	honor_opt_outs, honor_dnc_list, auto_opt_out_on_stop,
	require_sender_identification, required_sender_name,
	violation_action, log_violations, notify_on_violation, violation_notification_emails,
	block_non_compliant_journeys, allow_manual_override, override_reasons,
	maintain_consent_records, consent_record_retention_days,
	custom_rules, created_at, updated_at`

// ConfigRepository implements compliance.ConfigRepository on PostgreSQL
type ConfigRepository struct {
	db *pgxpool.Pool
}

// NewConfigRepository creates a new PostgreSQL compliance config repository
func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Get(ctx context.Context, tenantID uuid.UUID) (*compliance.Config, error) {
	row := r.db.QueryRow(ctx, `SELECT `+configColumns+` FROM compliance_configs WHERE tenant_id = $1`, tenantID)

	cfg, err := scanConfig(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("compliance config")
		}
		return nil, errors.NewInternalError("failed to get compliance config").WithCause(err)
	}
	return cfg, nil
}

func (r *ConfigRepository) CreateIfAbsent(ctx context.Context, cfg *compliance.Config) (*compliance.Config, error) {
	args, err := configArgs(cfg)
	if err != nil {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO compliance_configs (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (tenant_id) DO NOTHING
	`, args...)
	if err != nil {
		return nil, errors.NewInternalError("failed to insert compliance config").WithCause(err)
	}

	return r.Get(ctx, cfg.TenantID)
}

func (r *ConfigRepository) Save(ctx context.Context, cfg *compliance.Config) error {
	args, err := configArgs(cfg)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO compliance_configs (`+configColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT (tenant_id) DO UPDATE SET
			compliance_mode = EXCLUDED.compliance_mode,
			timezone = EXCLUDED.timezone,
			allowed_start_hour = EXCLUDED.allowed_start_hour,
			allowed_end_hour = EXCLUDED.allowed_end_hour,
			allowed_days_of_week = EXCLUDED.allowed_days_of_week,
			require_express_consent = EXCLUDED.require_express_consent,
			require_consent_for_automated = EXCLUDED.require_consent_for_automated,
			require_consent_for_marketing = EXCLUDED.require_consent_for_marketing,
			consent_expiration_days = EXCLUDED.consent_expiration_days,
			honor_opt_outs = EXCLUDED.honor_opt_outs,
			honor_dnc_list = EXCLUDED.honor_dnc_list,
			auto_opt_out_on_stop = EXCLUDED.auto_opt_out_on_stop,
			require_sender_identification = EXCLUDED.require_sender_identification,
			required_sender_name = EXCLUDED.required_sender_name,
			violation_action = EXCLUDED.violation_action,
			log_violations = EXCLUDED.log_violations,
			notify_on_violation = EXCLUDED.notify_on_violation,
			violation_notification_emails = EXCLUDED.violation_notification_emails,
			block_non_compliant_journeys = EXCLUDED.block_non_compliant_journeys,
			allow_manual_override = EXCLUDED.allow_manual_override,
			override_reasons = EXCLUDED.override_reasons,
			maintain_consent_records = EXCLUDED.maintain_consent_records,
			consent_record_retention_days = EXCLUDED.consent_record_retention_days,
			custom_rules = EXCLUDED.custom_rules,
			updated_at = EXCLUDED.updated_at
	`, args...)
	if err != nil {
		return errors.NewInternalError("failed to save compliance config").WithCause(err)
	}
	return nil
}

func (r *ConfigRepository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT tenant_id FROM compliance_configs ORDER BY tenant_id`)
	if err != nil {
		return nil, errors.NewInternalError("failed to list tenants").WithCause(err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, errors.NewInternalError("failed to scan tenants").WithCause(err)
	}
	return ids, nil
}

func configArgs(cfg *compliance.Config) ([]any, error) {
	rules, err := json.Marshal(cfg.CustomRules)
	if err != nil {
		return nil, errors.NewInternalError("failed to marshal custom rules").WithCause(err)
	}

	return []any{
		cfg.TenantID, string(cfg.ComplianceMode), cfg.Timezone,
		cfg.AllowedStartHour, cfg.AllowedEndHour, pq.Array(nonNil(cfg.AllowedDaysOfWeek)),
		cfg.RequireExpressConsent, cfg.RequireConsentForAutomated, cfg.RequireConsentForMarketing,
		cfg.ConsentExpirationDays,
		cfg.HonorOptOuts, cfg.HonorDNCList, cfg.AutoOptOutOnStop,
		cfg.RequireSenderIdentification, cfg.RequiredSenderName,
		string(cfg.ViolationAction), cfg.LogViolations, cfg.NotifyOnViolation, pq.Array(nonNil(cfg.ViolationNotificationEmails)),
		cfg.BlockNonCompliantJourneys, cfg.AllowManualOverride, pq.Array(nonNil(cfg.OverrideReasons)),
		cfg.MaintainConsentRecords, cfg.ConsentRecordRetentionDays,
		rules, cfg.CreatedAt, cfg.UpdatedAt,
	}, nil
}

func scanConfig(row pgx.Row) (*compliance.Config, error) {
	var (
		cfg                   compliance.Config
		mode, action          string
		days, emails, reasons []string
		rulesJSON             []byte
	)

	err := row.Scan(
		&cfg.TenantID, &mode, &cfg.Timezone,
		&cfg.AllowedStartHour, &cfg.AllowedEndHour, &days,
		&cfg.RequireExpressConsent, &cfg.RequireConsentForAutomated, &cfg.RequireConsentForMarketing,
		&cfg.ConsentExpirationDays,
		&cfg.HonorOptOuts, &cfg.HonorDNCList, &cfg.AutoOptOutOnStop,
		&cfg.RequireSenderIdentification, &cfg.RequiredSenderName,
		&action, &cfg.LogViolations, &cfg.NotifyOnViolation, &emails,
		&cfg.BlockNonCompliantJourneys, &cfg.AllowManualOverride, &reasons,
		&cfg.MaintainConsentRecords, &cfg.ConsentRecordRetentionDays,
		&rulesJSON, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cfg.ComplianceMode = compliance.ComplianceMode(mode)
	cfg.ViolationAction = compliance.ViolationAction(action)
	cfg.AllowedDaysOfWeek = emptyToNil(days)
	cfg.ViolationNotificationEmails = emptyToNil(emails)
	cfg.OverrideReasons = emptyToNil(reasons)

	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &cfg.CustomRules); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyToNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// Package oplog forwards deposit store operation callbacks to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"go.uber.org/zap"
)

// ZapLogger implements deposit.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger; a nil logger discards entries.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation writes ok entries at info, skipped at warn and failures at error.
func (adapter *ZapLogger) LogOperation(_ context.Context, entry deposit.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.Key != "" {
		fields = append(fields, zap.String("key", entry.Key))
	}
	if !entry.DepositID.IsZero() {
		fields = append(fields, zap.String("deposit_id", entry.DepositID.String()))
	}
	if entry.Quantity > 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}

	switch entry.Status {
	case deposit.StatusSkipped:
		adapter.logger.Warn("deposit record skipped", fields...)
	case deposit.StatusError:
		adapter.logger.Error("deposit operation failed", fields...)
	default:
		adapter.logger.Info("deposit operation", fields...)
	}
}

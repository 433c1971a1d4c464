package events

import (
	"context"
	"errors"

	"github.com/davidleathers/tcpa-compliance-engine/internal/service/compliance"
)

// MultiNotifier delivers a notice to every configured sink and reports the
// combined failures.
type MultiNotifier []compliance.Notifier

func (m MultiNotifier) NotifyViolations(ctx context.Context, notice compliance.ViolationNotice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyViolations(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

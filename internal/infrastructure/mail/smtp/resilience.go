package smtp

import (
	"errors"
	"net"
	"net/textproto"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/infrastructure/resilience"
)

// classifySMTPError retries transient 4xx replies and network failures.
// Permanent 5xx replies (bad mailbox, rejected content) are not retried and
// do not trip the breaker.
func classifySMTPError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.Ignored()
	}
	if class, ok := resilience.ClassifyContext(err); ok {
		return class
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return resilience.Transient()
		}
		return resilience.Ignored()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient()
	}
	return resilience.Permanent()
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifySMTPError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "smtp send", err)
	}
	return err
}

package email

import (
	"context"

	"github.com/clarence1979/teacherscheduler/pkg/logger"
	"github.com/clarence1979/teacherscheduler/pkg/scheduling"
	"github.com/clarence1979/teacherscheduler/pkg/users"
)

// UnscheduledDigest mails users whose reoptimization left tasks without a
// slot, so they can loosen constraints themselves
type UnscheduledDigest struct {
	Mailer         Mailer
	UserRepository users.UserRepositoryInterface
	Logger         logger.Interface
}

// OnScheduleUpdated gets called after every applied reoptimization
func (d *UnscheduledDigest) OnScheduleUpdated(result *scheduling.OptimizationResult) {
	if len(result.Unscheduled) == 0 {
		return
	}

	ctx := context.Background()

	user, err := d.UserRepository.FindByID(ctx, result.UserID.Hex())
	if err != nil {
		d.Logger.Error("Could not find user", err)
		return
	}

	var names []string
	var reasons []string
	for _, unscheduled := range result.Unscheduled {
		names = append(names, unscheduled.Task.Name)
		reasons = append(reasons, unscheduled.Reason)
	}

	err = d.Mailer.SendEmail(ctx, &Email{
		ReceiverName:    user.Firstname,
		ReceiverAddress: user.Email,
		Template:        UnscheduledDigestTemplate,
		Parameters: map[string]interface{}{
			"firstname":       user.Firstname,
			"tasks":           names,
			"reasons":         reasons,
			"recommendations": result.Recommendations,
		},
	})
	if err != nil {
		d.Logger.Error("Could not send unscheduled digest", err)
	}
}

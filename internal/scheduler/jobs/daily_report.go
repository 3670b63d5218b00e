package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/alphalens/internal/notify"
	"github.com/wonny/alphalens/pkg/logger"
)

// DailyReportJob screens the universe and sends the top picks
type DailyReportJob struct {
	selector Selector
	store    SelectionStore // nil → 저장 생략
	sender   notify.Sender
	userID   string
	schedule string
	logger   *logger.Logger
}

// NewDailyReportJob creates a new daily report job
func NewDailyReportJob(selector Selector, store SelectionStore, sender notify.Sender, userID, schedule string, log *logger.Logger) *DailyReportJob {
	return &DailyReportJob{
		selector: selector,
		store:    store,
		sender:   sender,
		userID:   userID,
		schedule: schedule,
		logger:   log.WithField("job", NameDailyReport),
	}
}

// Name returns the job name
func (j *DailyReportJob) Name() string {
	return NameDailyReport
}

// Schedule returns the cron schedule
func (j *DailyReportJob) Schedule() string {
	return j.schedule
}

// Run screens with the profile defaults, stores the run and sends the report.
// A failed delivery is logged and does not fail the job.
func (j *DailyReportJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled daily report")

	sel, err := j.selector.Select(ctx, nil, j.selector.DefaultCriteria())
	if err != nil {
		return fmt.Errorf("screening: %w", err)
	}

	if j.store != nil {
		if _, err := j.store.SaveSelection(ctx, sel); err != nil {
			return fmt.Errorf("save selection: %w", err)
		}
	}

	msg := notify.DailyReportMessage(j.userID, sel, j.selector.TopN())
	if err := j.sender.Send(ctx, msg); err != nil {
		j.logger.WithError(err).Warn("Daily report delivery failed")
	}

	j.logger.WithFields(map[string]interface{}{
		"passed":  len(sel.Ranked),
		"skipped": len(sel.Skipped),
	}).Info("Scheduled daily report completed")
	return nil
}

package extraction

import (
	"errors"
	"fmt"

	jobrt "github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	runID, ok := jc.PayloadUUID("run_id")
	if !ok {
		err := fmt.Errorf("payload missing run_id")
		jc.Fail("validate", err)
		return err
	}

	sum, err := p.extraction.Execute(dbctx.Context{Ctx: jc.Ctx}, runID, jc.Progress)
	if err != nil {
		stage := "extract"
		if errors.Is(err, services.ErrRunFailed) || errors.Is(err, services.ErrNotFound) {
			stage = "done"
		}
		p.log.Warn("extraction failed", "job_id", jc.Job.ID, "run_id", runID, "error", err)
		jc.Fail(stage, err)
		return err
	}

	jc.Succeed("done", sum)
	return nil
}

package documents

import (
	"fmt"

	jobrt "github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	caseID, ok := jc.PayloadUUID("case_id")
	if !ok {
		err := fmt.Errorf("payload missing case_id")
		jc.Fail("validate", err)
		return err
	}
	batchID, ok := jc.PayloadUUID("batch_id")
	if !ok {
		err := fmt.Errorf("payload missing batch_id")
		jc.Fail("validate", err)
		return err
	}
	req := services.DocumentRequest{
		CaseID:  caseID,
		BatchID: batchID,
		Types:   jc.PayloadStrings("types"),
		Formats: jc.PayloadStrings("formats"),
	}
	if runID, ok := jc.PayloadUUID("run_id"); ok {
		req.RunID = &runID
	}

	res, err := p.docs.ExecuteBatch(dbctx.Context{Ctx: jc.Ctx}, req, jc.Progress)
	if err != nil {
		p.log.Warn("document batch failed", "job_id", jc.Job.ID, "batch_id", batchID, "error", err)
		jc.Fail("render", err)
		return err
	}
	jc.Succeed("done", res)
	return nil
}

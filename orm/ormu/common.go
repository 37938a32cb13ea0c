package ormu

import (
	"github.com/banbox/banexg/utils"
)

func (r *Run) ToMap() map[string]interface{} {
	runMap := map[string]interface{}{
		"id":       r.ID,
		"mode":     r.Mode,
		"args":     r.Args,
		"config":   r.Config,
		"pairs":    r.Pairs,
		"periods":  r.Periods,
		"inds":     r.Inds,
		"createAt": r.CreateAt,
		"startAt":  r.StartAt,
		"stopAt":   r.StopAt,
		"status":   r.Status,
		"progress": r.Progress,
		"scanNum":  r.ScanNum,
		"gapNum":   r.GapNum,
		"fillNum":  r.FillNum,
		"skipNum":  r.SkipNum,
		"badNum":   r.BadNum,
		"note":     r.Note,
	}

	if r.Info != "" {
		var infoMap map[string]interface{}
		if err := utils.Unmarshal([]byte(r.Info), &infoMap, utils.JsonNumAuto); err == nil {
			for k, v := range infoMap {
				runMap[k] = v
			}
		}
	}
	return runMap
}

package ormu

import (
	"database/sql"

	"github.com/banbox/banexg/errs"
	"github.com/banbox/banind/core"
	"github.com/banbox/banind/orm"
)

func Conn() (*Queries, *sql.DB, *errs.Error) {
	db, err := orm.DbLite(orm.DbRuns, core.RunDbPath, true, 5000)
	if err != nil {
		return nil, nil, err
	}
	return New(db), db, nil
}

const (
	RunStatusInit = iota + 1
	RunStatusRunning
	RunStatusDone
	RunStatusFail
)

const (
	RunModeManual = "manual"
	RunModeCron   = "cron"
	RunModeAPI    = "api"
)

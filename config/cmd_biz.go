package config

import (
	"github.com/banbox/banind/utils"
)

func (a *CmdArgs) Init() {
	a.TimeFrames = utils.SplitSolid(a.RawTimeFrames, ",")
	a.Pairs = utils.SplitSolid(a.RawPairs, ",")
	a.Families = utils.SplitSolid(a.RawFamilies, ",")
}

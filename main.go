package main

import (
	"github.com/banbox/banind/entry"
)

func main() {
	entry.RunCmd()
}

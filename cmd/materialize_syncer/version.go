package main

import (
	"fmt"
	"os"

	pkgversion "github.com/selectdb/materialize_syncer/pkg/version"
)

func printVersion() {
	fmt.Println(pkgversion.GetVersion())
	os.Exit(0)
}

func getVersion() string {
	return pkgversion.GetVersion()
}

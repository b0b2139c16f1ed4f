// Command novac is the thin binary entrypoint over src/driver, mirroring
// the teacher's src/main.go run/main split: all orchestration logic lives in
// the driver package so it stays testable without a process boundary.
package main

import (
	"os"

	"novac/src/driver"
)

func main() {
	if err := driver.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

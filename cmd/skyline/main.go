// Command skyline はツアー会社向けバックエンドのAPIサーバーと運用コマンドを提供する。
//
// 使い方:
//
//	skyline [serve|migrate|setup|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/skyline/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れデータを掃除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// ParseRollbackSteps は migrate の追加引数を解析する。
// "migrate" のみなら0（すべて適用）、"migrate down [N]" なら巻き戻す件数（省略時1）を返す。
func ParseRollbackSteps(args []string) (int, error) {
	if len(args) < 2 {
		return 0, nil
	}
	if args[1] != "down" {
		return 0, fmt.Errorf("unknown migrate argument %q", args[1])
	}
	if len(args) < 3 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[2])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid rollback steps %q", args[2])
	}
	return steps, nil
}

// Package app はskylineバイナリのサブコマンドを解釈し、対応するモードで起動する。
package app

// Command はskylineのサブコマンド。
type Command string

const (
	// CommandServe はaction APIを提供する。引数なしの既定。
	CommandServe Command = "serve"
	// CommandMigrate は埋め込みSQLのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandSetup は最初の管理者アカウントを作成して終了する。
	CommandSetup Command = "setup"
	// CommandHealthcheck は稼働中のサーバーの/healthを叩く。
	// distrolessイメージにはcurlが無いため、DockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandSetup):       CommandSetup,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 知らない名前はserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// needsConfig は設定の読み込みとログの初期化が必要かを返す。
// healthcheckはDATABASE_URL等が無いコンテナ内でも動く必要がある。
func (c Command) needsConfig() bool {
	return c != CommandHealthcheck
}

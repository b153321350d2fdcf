package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session lifecycle (info)
		"Session %s recording to %s":            "セッション %s を %s に録画中",
		"Input tracking ended, stopping":        "入力の追跡が終了しました。停止します",
		"Session finished: %d steps, %d videos": "セッション終了: %d ステップ, %d 本の動画",
		"Summary saved to %s":                   "サマリーを %s に保存しました",
		"Recording paused":                      "録画を一時停止しました",
		"Recording resumed":                     "録画を再開しました",

		// Remote control
		"Control server listening on %s":   "コントロールサーバーが %s で待機中",
		"Stop requested by control client": "コントロールクライアントから停止が要求されました",

		// Errors and warnings
		"Cannot start capture: %s":    "キャプチャを開始できません: %s",
		"Capture failed: %s":          "キャプチャに失敗しました: %s",
		"Failed to write summary: %s": "サマリーの書き込みに失敗しました: %s",
	})
}

// Package main provides localization for the stepcast CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Output":         "出力先",
		"Capture":        "キャプチャ",
		"Input Tracking": "入力の追跡",
		"Encoding":       "エンコード",
		"Browser":        "ブラウザ設定",
		"Remote Control": "リモート操作",
		"Logging":        "ログ",

		// Root command
		"Record screen activity as one video per step": "画面操作をステップごとに1本の動画として録画",
		"stepcast records the screen and starts a new video file at every click, so each step of a walkthrough ends up in its own clip.": "stepcastは画面を録画し、クリックのたびに新しい動画ファイルを開始します。操作手順の各ステップがそれぞれ独立したクリップになります。",

		// Record command
		"Record steps until input tracking ends or the session is stopped": "入力の追跡が終了するかセッションが停止されるまでステップを録画",

		// Output flags
		"YAML configuration file; flags override its values": "YAML設定ファイル（フラグの値が優先されます）",
		"Directory for step videos and the summary":          "ステップ動画とサマリーの出力ディレクトリ",
		"Do not write summary.md and summary.json":           "summary.md と summary.json を出力しない",
		"Do not save a thumbnail of each step":               "ステップごとのサムネイルを保存しない",
		"Maximum thumbnail width in pixels":                  "サムネイルの最大幅（ピクセル）",

		// Capture flags
		"Capture source (testpattern, browser, desktop)":                 "キャプチャ元（testpattern, browser, desktop）",
		"Capture frame rate":                                             "キャプチャのフレームレート",
		"Capture width in pixels":                                        "キャプチャの幅（ピクセル）",
		"Capture height in pixels":                                       "キャプチャの高さ（ピクセル）",
		"Display to grab for the desktop source":                         "desktopキャプチャで取得するディスプレイ",
		"Raw ffmpeg input for the desktop source (e.g., lavfi:testsrc2)": "desktopキャプチャ用のffmpeg入力指定（例: lavfi:testsrc2）",
		"Include the mouse cursor in captured frames":                    "キャプチャにマウスカーソルを含める",

		// Tracking flags
		"Click source (stdin, interval, browser)":                        "クリックの入力元（stdin, interval, browser）",
		"Click period for the interval tracker":                          "intervalトラッカーのクリック間隔",
		"Stop after this many clicks (interval tracker, 0 = unlimited)": "指定回数クリックしたら停止（intervalトラッカー、0 = 無制限）",

		// Encoding flags
		"Video codec (auto, h264, mjpeg)":                            "動画コーデック（auto, h264, mjpeg）",
		"Video quality (1-100, higher is better)":                    "動画の品質（1-100、高いほど高品質）",
		"Downscale wider frames to this width (0 = keep)":            "この幅を超えるフレームを縮小（0 = 縮小しない）",
		"Path to ffmpeg executable":                                  "ffmpeg実行ファイルのパス",
		"Fall back to MJPEG when H.264 is requested but unavailable": "H.264が使えない場合にMJPEGで代替する",

		// Browser flags
		"Page to open for the browser source": "browserキャプチャで開くページ",
		"Path to Chrome executable":           "Chrome実行ファイルのパス",
		"Run browser in non-headless mode":    "ブラウザを非ヘッドレスモードで実行",
		"Ignore HTTPS certificate errors":     "HTTPS証明書エラーを無視",

		// Control flags
		"Serve the websocket control channel on this address (e.g., 127.0.0.1:7700)": "このアドレスでWebSocketコントロールを提供（例: 127.0.0.1:7700）",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "全てのログ出力を抑制",

		// Probe command
		"Show frame count, duration and size of recorded clips": "録画したクリップのフレーム数・再生時間・サイズを表示",
		"Print results as JSON":                                 "結果をJSONで出力",
		"At least one video file is required":                   "動画ファイルを1つ以上指定してください",
		"%s: %s %dx%d, %d frames (%d key), %s":                  "%s: %s %dx%d, %d フレーム (キー %d), %s",

		// Version command
		"Show version information": "バージョン情報を表示",
		"stepcast version %s":      "stepcast バージョン %s",

		// Runtime messages
		"Encoding with %s (%s)":                        "%s (%s) でエンコードします",
		"Control server failed: %s":                    "コントロールサーバーでエラーが発生しました: %s",
		"Interrupted, finishing current step...":       "中断されました。現在のステップを終了中...",
		"Interrupted again, aborting":                  "再度中断されました。処理を中止します",
		"Press Enter to start a new step, q to finish": "Enterで新しいステップを開始、qで終了",
		"Step %d":                                      "ステップ %d",
		"Step %d: %s (%d frames)":                      "ステップ %d: %s (%d フレーム)",
	})
}

package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は通知テキストのサニタイズ機能のインターフェースを定義する。
// デッキタイトルは管理者入力であり、HTMLを解釈する通知先に
// そのまま流すとマークアップが混入するため、送信前にプレーンテキスト化する。
type TextSanitizerService interface {
	// SanitizeText は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// 実体参照はデコードし、前後の空白を取り除く。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストノードのみを残す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は入力から全てのHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは残存テキストを実体参照でエスケープするため、デコードして戻す
	return strings.TrimSpace(html.UnescapeString(stripped))
}

package generation

import (
	"strings"
	"text/template"
)

var promptTemplate = template.Must(template.New("reading").Parse(`당신은 20년 경력의 사주명리학 전문가입니다.
아래 정보를 바탕으로 사주팔자를 분석하고, 결과를 한국어 마크다운으로 작성해 주세요.

## 기본 정보
- 이름: {{.Name}}
- 생년월일: {{.BirthDate}} ({{if .IsLunar}}음력{{else}}양력{{end}})
- 태어난 시간: {{if .BirthTime}}{{.BirthTime}}{{else}}모름 (시주 분석은 생략하세요){{end}}
- 성별: {{if eq .Gender "male"}}남성{{else}}여성{{end}}
{{- if .TimeZone}}
- 출생 지역 시간대: {{.TimeZone}}
{{- end}}
{{- if .Note}}
- 추가 정보: {{.Note}}
{{- end}}

## 작성할 항목
1. 사주 원국: 천간과 지지로 구성된 네 기둥을 표로 정리
2. 오행 분석: 목, 화, 토, 금, 수의 분포와 균형
3. 성격과 기질
4. 재물운과 직업운
5. 건강운
6. 대인관계와 애정운
7. 올해의 운세와 조언

## 작성 원칙
- 단정적인 예언 대신 경향과 가능성으로 설명하세요.
- 의학적, 법률적, 재정적 결정을 대신하는 조언은 하지 마세요.
- 각 항목은 제목(###)으로 구분하고 긍정적인 조언으로 마무리하세요.
`))

// BuildPrompt renders the reading prompt for a normalized input.
func BuildPrompt(in Input) string {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, in); err != nil {
		// the template only reads string and bool fields of Input
		panic(err)
	}
	return b.String()
}

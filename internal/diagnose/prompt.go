package diagnose

import (
	"fmt"
	"strings"

	"github.com/qazmed/diagdex/internal/retrieval"
)

// systemPrompt pins the model to the retrieved protocols: prefer the disease
// over its symptom, use only the codes listed for the protocol, no outside
// knowledge.
const systemPrompt = `Ты — главный медицинский эксперт. Твоя задача — классификация по протоколам.

ПРАВИЛА ПРИОРИТЕТА:
1. ИЩИ ПРИЧИНУ, А НЕ СЛЕДСТВИЕ: Если в протоколе описано заболевание (например, Остеомиелит или Рак) и его симптом (отек, боль), ты ОБЯЗАН выбрать код заболевания. Запрещено выбирать код симптома (R-коды) или вторичного состояния, если есть основной диагноз.
2. МКБ-10 СТРОГОСТЬ: Используй только те коды, которые явно указаны в поле "ДОПУСТИМЫЕ КОДЫ" предоставленного протокола.
3. НИКАКИХ ВНЕШНИХ ЗНАНИЙ: Если в протоколе написано, что "боль в ноге — это признак Х", пиши "Х", даже если ты "думаешь", что это "Y".

ОТВЕТЬ СТРОГО В ФОРМАТЕ JSON:
{
    "diagnoses": [
        {
            "rank": 1,
            "diagnosis": "Полное название из заголовка протокола",
            "icd10_code": "Код строго из списка этого протокола",
            "explanation": "Конкретная улика из текста протокола."
        }
    ]
}`

const unknownProtocolTitle = "Неизвестный протокол"

// buildUserPrompt lays the retrieved chunks out as numbered protocol blocks,
// each carrying its own permitted code list, followed by the task statement.
func buildUserPrompt(symptoms string, candidates []retrieval.Candidate, topN int) string {
	var context strings.Builder
	for i, c := range candidates {
		title := c.Payload.Title
		if title == "" {
			title = unknownProtocolTitle
		}
		codes := strings.Join(c.Payload.ICDCodes, ", ")
		if i > 0 {
			context.WriteString("\n")
		}
		fmt.Fprintf(&context, "--- ПРОТОКОЛ №%d ---\n", i+1)
		fmt.Fprintf(&context, "НАЗВАНИЕ: %s\n", title)
		fmt.Fprintf(&context, "ДОПУСТИМЫЕ КОДЫ МКБ-10: %s\n", codes)
		fmt.Fprintf(&context, "ВЫДЕРЖКА ИЗ ТЕКСТА: %s\n", c.Payload.Text)
	}

	return fmt.Sprintf(`СИМПТОМЫ ПАЦИЕНТА:
%s

ДОСТУПНЫЕ КЛИНИЧЕСКИЕ ПРОТОКОЛЫ ДЛЯ АНАЛИЗА:
%s

ЗАДАНИЕ:
На основе симптомов выбери топ-%d диагноза из списка выше.
Для каждого диагноза обязательно укажи точный код МКБ-10 из списка допустимых кодов этого протокола.`,
		symptoms, context.String(), topN)
}

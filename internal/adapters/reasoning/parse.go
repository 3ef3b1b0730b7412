package reasoning

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// estimate es la salida normalizada del modelo.
type estimate struct {
	Probability float64
	Confidence  float64
	Reasoning   string
}

var (
	probKeys   = []string{"probability", "implied_probability", "prob", "p_yes", "yes_probability"}
	confKeys   = []string{"confidence", "conf", "certainty"}
	reasonKeys = []string{"reasoning", "rationale", "explanation", "analysis"}

	probLabelRe   = regexp.MustCompile(`(?i)(?:implied\s+|yes\s+)?probability\s*(?:of\s+yes\s*)?\**\s*[:=]\s*\**\s*([0-9]*\.?[0-9]+)\s*(%)?`)
	confLabelRe   = regexp.MustCompile(`(?i)confidence\s*\**\s*[:=]\s*\**\s*([0-9]*\.?[0-9]+)\s*(%)?`)
	reasonLabelRe = regexp.MustCompile(`(?is)(?:reasoning|rationale)\s*[:=]\s*(.+)`)
)

// parseEstimate extrae probabilidad y confianza de la respuesta del modelo.
// Primero busca un objeto JSON embebido; si no, campos etiquetados en texto
// libre. Sin probabilidad válida devuelve ok=false: nunca se asume 0.5.
// La confianza ausente vale 0.
func parseEstimate(text string) (estimate, bool) {
	if est, ok := parseJSONEstimate(text); ok {
		return est, true
	}
	return parseLabeledEstimate(text)
}

func parseJSONEstimate(text string) (estimate, bool) {
	obj := extractJSONObject(text)
	if obj == "" {
		return estimate{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return estimate{}, false
	}
	lower := make(map[string]any, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(k)] = v
	}

	prob, ok := lookupNumber(lower, probKeys)
	if !ok {
		return estimate{}, false
	}

	est := estimate{Probability: prob}
	if conf, ok := lookupNumber(lower, confKeys); ok {
		est.Confidence = conf
	}
	for _, k := range reasonKeys {
		if s, ok := lower[k].(string); ok && s != "" {
			est.Reasoning = strings.TrimSpace(s)
			break
		}
	}
	return est, true
}

func parseLabeledEstimate(text string) (estimate, bool) {
	m := probLabelRe.FindStringSubmatch(text)
	if m == nil {
		return estimate{}, false
	}
	prob, ok := labeledValue(m)
	if !ok {
		return estimate{}, false
	}

	est := estimate{Probability: prob}
	if cm := confLabelRe.FindStringSubmatch(text); cm != nil {
		if c, ok := labeledValue(cm); ok {
			est.Confidence = c
		}
	}
	if rm := reasonLabelRe.FindStringSubmatch(text); rm != nil {
		est.Reasoning = strings.TrimSpace(rm[1])
	}
	return est, true
}

// labeledValue convierte el match (valor, "%" opcional) a [0,1].
func labeledValue(m []string) (float64, bool) {
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return normalize(v, m[2] == "%")
}

// lookupNumber devuelve el primer valor válido en [0,1] entre las claves.
// Acepta números JSON y strings como "62%" o "0.62".
func lookupNumber(fields map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			return normalize(v, false)
		case string:
			s := strings.TrimSpace(v)
			pct := strings.HasSuffix(s, "%")
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
			if err != nil {
				continue
			}
			return normalize(f, pct)
		}
	}
	return 0, false
}

// normalize lleva el valor a [0,1]. Con sufijo % divide por 100; sin él,
// valores en (1,100] se leen como porcentaje. Fuera de rango es inválido.
func normalize(v float64, pct bool) (float64, bool) {
	if pct || (v > 1 && v <= 100) {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// extractJSONObject devuelve el primer objeto JSON balanceado del texto,
// ignorando fences de markdown.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

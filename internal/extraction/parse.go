package extraction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// extractionSystemPrompt is shared by all providers. It pins down the exact
// field mapping so the response can be unmarshaled directly.
const extractionSystemPrompt = `你是一个专业的财务发票识别专家。
任务：从提供的发票图像或 PDF 中提取结构化数据。
输出格式：严格的 JSON 对象。

字段映射规则（必须精准）：
- invoiceType: 发票种类名称（例如：增值税专用发票、增值税普通发票）。
- invoiceNumber: 发票号码（通常位于右上角，请完整提取所有数字）。
- date: 开票日期（格式为 YYYY年MM月DD日）。
- buyer: 对象，包含 name (名称) 和 taxId (纳税人识别号)。
- seller: 对象，包含 name (名称) 和 taxId (纳税人识别号)。
- items: 数组，包含发票上的所有明细行。每一行必须包含：
    - itemName: 货物或应税劳务、服务名称
    - specification: 规格型号
    - unit: 单位
    - quantity: 数量（数值类型）
    - unitPrice: 单价（数值类型）
    - amount: 金额（数值类型，不含税）
    - taxRate: 税率（字符串，如 "13%" 或 "3%"）
    - taxAmount: 税额（数值类型）
- total: 对象，包含 amountWords (价税合计大写) 和 amountNum (价税合计小写数值)。
- remark: 备注信息（若无则为空字符串）。
- issuer: 开票人姓名。

重要指令：
1. 仔细识别右上角的发票号码，它是财务入账的关键，不能有误。
2. 必须提取明细表中的所有行，严禁遗漏。
3. 所有金额和数量必须转换为纯数字类型，不得包含货币符号或逗号。
4. 仅输出 JSON 字符串，不得包含任何 Markdown 格式说明符（如 ` + "```json" + `）。`

// extractionUserPrompt accompanies the document in the user turn.
const extractionUserPrompt = "请识别并提取这张发票的所有结构化信息，输出为 JSON 格式。"

// flexNumber tolerates models that quote numerics ("100.00") or drop the
// field entirely; anything unparseable becomes zero rather than failing the
// whole document.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexNumber(v)
	return nil
}

// rawInvoice is the lenient wire form of the model response.
type rawInvoice struct {
	InvoiceType   string `json:"invoiceType"`
	InvoiceNumber string `json:"invoiceNumber"`
	Date          string `json:"date"`
	Buyer         struct {
		Name  string `json:"name"`
		TaxID string `json:"taxId"`
	} `json:"buyer"`
	Seller struct {
		Name  string `json:"name"`
		TaxID string `json:"taxId"`
	} `json:"seller"`
	Items []struct {
		ItemName      string     `json:"itemName"`
		Specification string     `json:"specification"`
		Unit          string     `json:"unit"`
		Quantity      flexNumber `json:"quantity"`
		UnitPrice     flexNumber `json:"unitPrice"`
		Amount        flexNumber `json:"amount"`
		TaxRate       string     `json:"taxRate"`
		TaxAmount     flexNumber `json:"taxAmount"`
	} `json:"items"`
	Total struct {
		AmountWords string     `json:"amountWords"`
		AmountNum   flexNumber `json:"amountNum"`
	} `json:"total"`
	Remark string `json:"remark"`
	Issuer string `json:"issuer"`
}

// parseInvoiceJSON parses a model response into an Invoice, stripping
// markdown fences and surrounding chatter when present.
func parseInvoiceJSON(text string) (*Invoice, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Some models wrap the object in prose despite the prompt. Cut down to
	// the outermost braces before unmarshaling.
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw rawInvoice
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	return mapRawInvoice(raw), nil
}

// mapRawInvoice fills the sentinel defaults for fields the model left blank.
func mapRawInvoice(raw rawInvoice) *Invoice {
	inv := &Invoice{
		InvoiceType:   strings.TrimSpace(raw.InvoiceType),
		InvoiceNumber: strings.TrimSpace(raw.InvoiceNumber),
		Date:          strings.TrimSpace(raw.Date),
		Buyer:         Party{Name: raw.Buyer.Name, TaxID: raw.Buyer.TaxID},
		Seller:        Party{Name: raw.Seller.Name, TaxID: raw.Seller.TaxID},
		Total:         Total{AmountWords: raw.Total.AmountWords, AmountNum: float64(raw.Total.AmountNum)},
		Remark:        raw.Remark,
		Issuer:        raw.Issuer,
	}
	if inv.InvoiceType == "" {
		inv.InvoiceType = DefaultInvoiceType
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = UnknownInvoiceNumber
	}

	inv.Items = make([]LineItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		name := strings.TrimSpace(it.ItemName)
		if name == "" {
			name = UnknownItemName
		}
		inv.Items = append(inv.Items, LineItem{
			ItemName:      name,
			Specification: it.Specification,
			Unit:          it.Unit,
			Quantity:      float64(it.Quantity),
			UnitPrice:     float64(it.UnitPrice),
			Amount:        float64(it.Amount),
			TaxRate:       it.TaxRate,
			TaxAmount:     float64(it.TaxAmount),
		})
	}
	return inv
}

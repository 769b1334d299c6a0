// Package nfe parses Brazilian NF-e electronic invoice documents into
// normalized records. One document in, one bundle out; nothing is merged at
// this stage.
package nfe

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrParse indicates the document lacks the mandatory NF-e structure.
var ErrParse = errors.New("nfe: malformed document")

type xmlProc struct {
	NFe  xmlNFe `xml:"NFe"`
	Prot struct {
		InfProt struct {
			ChNFe string `xml:"chNFe"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

type xmlNFe struct {
	InfNFe xmlInfNFe `xml:"infNFe"`
}

type xmlInfNFe struct {
	ID  string `xml:"Id,attr"`
	Ide struct {
		NNF   string `xml:"nNF"`
		Serie string `xml:"serie"`
		DhEmi string `xml:"dhEmi"`
		DEmi  string `xml:"dEmi"`
	} `xml:"ide"`
	Emit struct {
		CNPJ  string `xml:"CNPJ"`
		CPF   string `xml:"CPF"`
		XNome string `xml:"xNome"`
	} `xml:"emit"`
	Dest struct {
		CNPJ string `xml:"CNPJ"`
		CPF  string `xml:"CPF"`
	} `xml:"dest"`
	Det   []xmlDet `xml:"det"`
	Total struct {
		ICMSTot struct {
			VBC     string `xml:"vBC"`
			VICMS   string `xml:"vICMS"`
			VST     string `xml:"vST"`
			VProd   string `xml:"vProd"`
			VFrete  string `xml:"vFrete"`
			VSeg    string `xml:"vSeg"`
			VDesc   string `xml:"vDesc"`
			VIPI    string `xml:"vIPI"`
			VPIS    string `xml:"vPIS"`
			VCOFINS string `xml:"vCOFINS"`
			VOutro  string `xml:"vOutro"`
			VNF     string `xml:"vNF"`
		} `xml:"ICMSTot"`
	} `xml:"total"`
	Cobr struct {
		Dup []struct {
			NDup  string `xml:"nDup"`
			DVenc string `xml:"dVenc"`
			VDup  string `xml:"vDup"`
		} `xml:"dup"`
	} `xml:"cobr"`
}

type xmlDet struct {
	NItem string `xml:"nItem,attr"`
	Prod  struct {
		CProd  string `xml:"cProd"`
		XProd  string `xml:"xProd"`
		UCom   string `xml:"uCom"`
		QCom   string `xml:"qCom"`
		VUnCom string `xml:"vUnCom"`
		VProd  string `xml:"vProd"`
	} `xml:"prod"`
	Imposto struct {
		// Each tax block nests one CST-dependent group element
		// (ICMS00, ICMS60, PISAliq, ...) so match it with a wildcard.
		ICMS struct {
			Group struct {
				VICMS string `xml:"vICMS"`
			} `xml:",any"`
		} `xml:"ICMS"`
		IPI struct {
			Group struct {
				VIPI string `xml:"vIPI"`
			} `xml:",any"`
		} `xml:"IPI"`
		PIS struct {
			Group struct {
				VPIS string `xml:"vPIS"`
			} `xml:",any"`
		} `xml:"PIS"`
		COFINS struct {
			Group struct {
				VCOFINS string `xml:"vCOFINS"`
			} `xml:",any"`
		} `xml:"COFINS"`
	} `xml:"imposto"`
}

// Parse turns one NF-e XML document into a normalized bundle. It accepts the
// signed nfeProc wrapper or a bare NFe element. Optional numeric fields parse
// fail-soft to nil; missing mandatory structure returns ErrParse.
func Parse(raw []byte) (*Document, error) {
	var proc xmlProc
	if err := xml.Unmarshal(raw, &proc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	inf := proc.NFe.InfNFe
	if inf.ID == "" && len(inf.Det) == 0 {
		// Possibly a bare NFe document without the nfeProc wrapper.
		var nfe xmlNFe
		if err := xml.Unmarshal(raw, &nfe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		inf = nfe.InfNFe
	}
	if inf.ID == "" && inf.Ide.NNF == "" {
		return nil, fmt.Errorf("%w: missing infNFe header block", ErrParse)
	}

	accessKey := proc.Prot.InfProt.ChNFe
	if accessKey == "" {
		accessKey = strings.TrimPrefix(inf.ID, "NFe")
	}
	if !validAccessKey(accessKey) {
		return nil, fmt.Errorf("%w: invalid access key %q", ErrParse, accessKey)
	}

	tot := inf.Total.ICMSTot
	inv := Invoice{
		AccessKey:            accessKey,
		Number:               inf.Ide.NNF,
		Series:               inf.Ide.Serie,
		IssuedAt:             parseIssueDate(inf.Ide.DhEmi, inf.Ide.DEmi),
		IssuerTaxID:          firstNonEmpty(inf.Emit.CNPJ, inf.Emit.CPF),
		IssuerName:           inf.Emit.XNome,
		RecipientTaxID:       firstNonEmpty(inf.Dest.CNPJ, inf.Dest.CPF),
		TotalProductValue:    deref(parseDecimal(tot.VProd)),
		TotalInvoiceValue:    deref(parseDecimal(tot.VNF)),
		TotalFreight:         parseDecimal(tot.VFrete),
		TotalInsurance:       parseDecimal(tot.VSeg),
		TotalDiscount:        parseDecimal(tot.VDesc),
		TotalOtherCharges:    parseDecimal(tot.VOutro),
		ReconciliationStatus: ReconStatusPending,
		AllocationStatus:     AllocStatusNone,
	}

	lines := make([]LineItem, 0, len(inf.Det))
	for i, det := range inf.Det {
		num, err := strconv.Atoi(det.NItem)
		if err != nil || num <= 0 {
			num = i + 1
		}
		lines = append(lines, LineItem{
			AccessKey:   accessKey,
			LineNumber:  num,
			ProductCode: det.Prod.CProd,
			Description: det.Prod.XProd,
			Unit:        det.Prod.UCom,
			Quantity:    deref(parseDecimal(det.Prod.QCom)),
			UnitValue:   deref(parseDecimal(det.Prod.VUnCom)),
			GrossValue:  deref(parseDecimal(det.Prod.VProd)),
			ICMSValue:   parseDecimal(det.Imposto.ICMS.Group.VICMS),
			IPIValue:    parseDecimal(det.Imposto.IPI.Group.VIPI),
			PISValue:    parseDecimal(det.Imposto.PIS.Group.VPIS),
			COFINSValue: parseDecimal(det.Imposto.COFINS.Group.VCOFINS),
		})
	}

	installments := make([]Installment, 0, len(inf.Cobr.Dup))
	for i, dup := range inf.Cobr.Dup {
		number := dup.NDup
		if number == "" {
			number = fmt.Sprintf("%03d", i+1)
		}
		due, _ := time.Parse("2006-01-02", dup.DVenc)
		installments = append(installments, Installment{
			AccessKey: accessKey,
			Number:    number,
			DueDate:   due,
			Amount:    deref(parseDecimal(dup.VDup)),
		})
	}

	taxes := TaxTotals{
		AccessKey:   accessKey,
		ICMSBase:    parseDecimal(tot.VBC),
		ICMSValue:   parseDecimal(tot.VICMS),
		ICMSSTValue: parseDecimal(tot.VST),
		IPIValue:    parseDecimal(tot.VIPI),
		PISValue:    parseDecimal(tot.VPIS),
		COFINSValue: parseDecimal(tot.VCOFINS),
	}

	return &Document{
		Invoice:      inv,
		Lines:        lines,
		Installments: installments,
		Taxes:        taxes,
	}, nil
}

func validAccessKey(key string) bool {
	if len(key) != AccessKeyLength {
		return false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseDecimal parses a source-format decimal (dot separator). Missing or
// garbled values become nil rather than an error.
func parseDecimal(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func parseIssueDate(dhEmi, dEmi string) time.Time {
	if dhEmi != "" {
		if t, err := time.Parse(time.RFC3339, dhEmi); err == nil {
			return t
		}
	}
	if dEmi != "" {
		if t, err := time.Parse("2006-01-02", dEmi); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

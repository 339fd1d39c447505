package builtin

import (
	"fmt"
	"strings"
)

// healthcareKeywords 上传工具的医疗关键词白名单
var healthcareKeywords = []string{
	// 保险
	"insurance", "policy", "premium", "deductible", "copay", "coinsurance", "coverage", "benefit",
	"claim", "eob", "explanation of benefits", "medicare", "medicaid", "hmo", "ppo", "fep",

	// 医疗
	"medical", "health", "healthcare", "physician", "doctor", "hospital", "clinic", "prescription",
	"medication", "treatment", "diagnosis", "procedure", "surgery", "therapy", "preventive",

	// 文档类型
	"medical record", "discharge summary", "lab result", "radiology", "pathology", "immunization",
	"vaccination", "physical exam", "wellness", "screening", "mammogram", "colonoscopy",

	// 疾病
	"diabetes", "hypertension", "cancer", "heart", "mental health", "depression", "anxiety",

	// 保险公司
	"blue cross", "blue shield", "aetna", "cigna", "humana", "kaiser", "unitedhealth",
	"bcbs", "anthem", "molina", "centene",
}

// IsHealthcareRelated 文件名或正文命中任一关键词即视为医疗文档
func IsHealthcareRelated(filename, text string) bool {
	return containsKeyword(filename) || containsKeyword(text)
}

func containsKeyword(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, k := range healthcareKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RejectionMessage 非医疗文档的拒绝说明
func RejectionMessage(filename string) string {
	return fmt.Sprintf(`🚫 **Document Upload Rejected**

**File**: %s
**Reason**: This document does not appear to be healthcare-related

**Healthcare Content Required**:
The upload tool is specifically designed for healthcare documents such as:
• Insurance policies and cards
• Medical records and reports
• Explanation of Benefits (EOB)
• Prescription information
• Lab results and test reports
• Healthcare provider documents

**Suggestion**: Please upload healthcare-related documents only. For general document storage, use alternative methods.

❌ Upload rejected to protect healthcare-specific database integrity.`, filename)
}

package content

import (
	"testing"

	"github.com/domainpress/pipeline/internal/models"
)

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		name    string
		keyword string
		want    string
	}{
		{"comparison vs", "honda civic vs toyota corolla", models.ContentTypeComparison},
		{"comparison compared to", "solar compared to gas heating", models.ContentTypeComparison},
		{"calculator word", "mortgage calculator", models.ContentTypeCalculator},
		{"tool word without exclusion", "a useful tool for budgeting", models.ContentTypeCalculator},
		{"toolkit excluded from calculator", "marketing toolkit guide", models.ContentTypeArticle},
		{"cost guide", "average fence installation cost", models.ContentTypeCostGuide},
		{"how much guide", "how much does a root canal cost", models.ContentTypeCostGuide},
		{"wizard eligibility", "am i eligible for a refund", models.ContentTypeWizard},
		{"wizard do i qualify", "do i qualify for medicaid", models.ContentTypeWizard},
		{"wizard which right for", "which plan is right for you", models.ContentTypeWizard},
		{"wizard should i or", "should i lease or buy a car", models.ContentTypeWizard},
		{"lead capture lawyer", "best car accident lawyer", models.ContentTypeLeadCapture},
		{"lead capture get a quote", "get a quote for home insurance", models.ContentTypeLeadCapture},
		{"lead capture claim", "how to file a claim", models.ContentTypeLeadCapture},
		{"claim to excluded", "brands that claim to be organic", models.ContentTypeArticle},
		{"lead capture case", "do i have a case for a lawsuit", models.ContentTypeLeadCapture},
		{"case study excluded", "a customer case study", models.ContentTypeArticle},
		{"health decision safe", "is ibuprofen safe during pregnancy", models.ContentTypeHealthDecision},
		{"health decision side effects", "statin side effects", models.ContentTypeHealthDecision},
		{"faq", "shipping faq", models.ContentTypeFAQ},
		{"faq q&a", "warranty q&a", models.ContentTypeFAQ},
		{"checklist word", "moving checklist", models.ContentTypeChecklist},
		{"checklist step by step", "step by step guide to taxes", models.ContentTypeChecklist},
		{"review word", "blender review", models.ContentTypeReview},
		{"review best", "best budget laptops", models.ContentTypeReview},
		{"best practice excluded from review", "industry best practice", models.ContentTypeArticle},
		{"review top n", "top 10 hiking boots", models.ContentTypeReview},
		{"fallback to article", "history of the roman empire", models.ContentTypeArticle},
		{"case insensitive", "BEST VPN VS COMPETITORS", models.ContentTypeComparison},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectContentType(tc.keyword)
			if got != tc.want {
				t.Errorf("DetectContentType(%q) = %q, want %q", tc.keyword, got, tc.want)
			}
		})
	}
}

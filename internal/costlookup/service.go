// Package costlookup 通过网络搜索估算医疗检查费用
package costlookup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// ErrNotConfigured 缺少搜索凭证
var ErrNotConfigured = errors.New("google search credentials not configured")

// Result 一条搜索结果
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Searcher 网络搜索能力
type Searcher interface {
	Search(ctx context.Context, query string, num int64) ([]Result, error)
}

// GoogleOptions Google Custom Search 配置
type GoogleOptions struct {
	APIKey   string
	CX       string
	Endpoint string // 测试时指向 httptest
	Timeout  time.Duration
}

// GoogleSearcher 基于 Custom Search JSON API
type GoogleSearcher struct {
	svc     *customsearch.Service
	cx      string
	timeout time.Duration
}

// NewGoogleSearcher 创建 Google 搜索客户端，缺少凭证时返回 ErrNotConfigured
func NewGoogleSearcher(ctx context.Context, opts GoogleOptions) (*GoogleSearcher, error) {
	if opts.APIKey == "" || opts.CX == "" {
		return nil, ErrNotConfigured
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建 customsearch 服务失败: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleSearcher{svc: svc, cx: opts.CX, timeout: timeout}, nil
}

// Search 执行搜索
func (g *GoogleSearcher) Search(ctx context.Context, query string, num int64) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.svc.Cse.List().Q(query).Cx(g.cx).Num(num).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google 搜索失败: %w", err)
	}
	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{Title: item.Title, Snippet: item.Snippet, Link: item.Link})
	}
	return results, nil
}

var (
	costPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+(?:\s*-\s*\$[\d,]+)?`),
		regexp.MustCompile(`(?i)[\d,]+\s*(?:to|-)?\s*[\d,]+\s*dollars?`),
		regexp.MustCompile(`(?i)costs?\s+(?:range|between|from)?\s*\$?[\d,]+`),
		regexp.MustCompile(`(?i)average\s+(?:cost|price)\s*:?\s*\$?[\d,]+`),
	}
	costPrefix = regexp.MustCompile(`(?i)costs?\s+(?:range|between|from)?\s*`)
)

// Service 医疗检查费用查询
type Service struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewService searcher 为 nil 时所有查询返回"未找到"提示
func NewService(searcher Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, logger: logger}
}

// Query 搜索关键词
func Query(testName string) string {
	return fmt.Sprintf(`%s cost price medical test procedure "average cost" "$"`, testName)
}

// Lookup 返回面向用户的费用说明，搜索失败也返回提示文本
func (s *Service) Lookup(ctx context.Context, testName string) (string, error) {
	testName = strings.TrimSpace(testName)
	if testName == "" {
		return "", fmt.Errorf("testName 不能为空")
	}

	if s.searcher == nil {
		s.logger.Warn("未配置网络搜索，无法查询费用", zap.String("test", testName))
		return notFound(testName), nil
	}

	results, err := s.searcher.Search(ctx, Query(testName), 5)
	if err != nil {
		s.logger.Error("费用搜索失败", zap.String("test", testName), zap.Error(err))
		return fmt.Sprintf("Unable to retrieve cost information for %s at this time. Please try again later.", testName), nil
	}
	if len(results) == 0 {
		return notFound(testName), nil
	}

	if costs := ExtractCosts(results); len(costs) > 0 {
		return fmt.Sprintf("%s Cost Estimate:\n\nBased on current data: %s\n\nNote: Costs vary significantly by location, insurance coverage, and healthcare provider. Always verify with your specific provider.",
			testName, strings.Join(costs, ", ")), nil
	}
	return fmt.Sprintf("%s costs vary widely based on location and provider. Typical ranges are $200-$3,000+ depending on the type of %s, location, and insurance coverage. Contact your healthcare provider for specific pricing.",
		testName, strings.ToLower(testName)), nil
}

func notFound(testName string) string {
	return fmt.Sprintf("Unable to find current cost information for %s. Please consult with healthcare providers for accurate pricing.", testName)
}

// ExtractCosts 从标题与摘要中提取前 3 个不重复的价格片段
func ExtractCosts(results []Result) []string {
	seen := make(map[string]bool)
	var found []string
	for _, r := range results {
		text := strings.ToLower(r.Title + " " + r.Snippet)
		for _, p := range costPatterns {
			for _, m := range p.FindAllString(text, -1) {
				if seen[m] {
					continue
				}
				seen[m] = true
				found = append(found, m)
			}
		}
	}
	if len(found) > 3 {
		found = found[:3]
	}
	for i, c := range found {
		found[i] = strings.TrimSpace(costPrefix.ReplaceAllString(c, ""))
	}
	return found
}

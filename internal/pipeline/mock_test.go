package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/harborview-partners/diligence-cli/internal/model"
	"github.com/harborview-partners/diligence-cli/pkg/anthropic"
	"github.com/harborview-partners/diligence-cli/pkg/docai"
	"github.com/harborview-partners/diligence-cli/pkg/knowledge"
	"github.com/harborview-partners/diligence-cli/pkg/marketdata"
)

// MockAnthropic is a testify mock for anthropic.Client.
type MockAnthropic struct {
	mock.Mock
}

func (m *MockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// MockExtractor is a testify mock for docai.Client.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, req docai.ExtractRequest) (*docai.ExtractResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docai.ExtractResponse), args.Error(1)
}

// MockMarket is a testify mock for marketdata.Client.
type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) GetBenchmarks(ctx context.Context, industry, stage string) (*marketdata.BenchmarkResponse, error) {
	args := m.Called(ctx, industry, stage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.BenchmarkResponse), args.Error(1)
}

func (m *MockMarket) GetCompetitors(ctx context.Context, company, industry string) (*marketdata.CompetitorResponse, error) {
	args := m.Called(ctx, company, industry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.CompetitorResponse), args.Error(1)
}

// MockKnowledge is a testify mock for knowledge.Client.
type MockKnowledge struct {
	mock.Mock
}

func (m *MockKnowledge) GetGuidance(ctx context.Context, req knowledge.GuidanceRequest) (*knowledge.GuidanceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*knowledge.GuidanceResponse), args.Error(1)
}

// MockEngine is a testify mock for ReasoningEngine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Reason(ctx context.Context, docs []model.ReasoningDocument, depth model.AnalysisDepth) (*model.ReasoningResult, error) {
	args := m.Called(ctx, docs, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReasoningResult), args.Error(1)
}

func (m *MockEngine) Name() string { return "mock" }

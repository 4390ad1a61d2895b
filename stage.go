// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

// stage names a step of the pipeline. Each stage starts only after
// every worker of the previous stage has finished.
type stage string

const (
	stageEstimating       stage = "EstimatingBackground"
	stageBackgroundMerged stage = "BackgroundMerged"
	stageScoring          stage = "Scoring"
	stageScoresMerged     stage = "ScoresMerged"
	stageNullGenerating   stage = "NullGenerating"
	stageDistributionFit  stage = "DistributionFit"
	stagePValuing         stage = "PValuing"
	stageWritten          stage = "Written"
)

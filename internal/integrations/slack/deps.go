package slackbot

import (
	"ingrealloc/internal/config"
	"ingrealloc/internal/domain"
)

type Config = config.Config
type AllocationResult = domain.AllocationResult
type ItemAllocation = domain.ItemAllocation
type RequestLine = domain.RequestLine

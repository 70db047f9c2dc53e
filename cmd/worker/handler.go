package main

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/ContactScope/internal/infrastructure/database/redis"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// requestRunner is the part of analysis.Service the worker drives.
type requestRunner interface {
	HandleRequest(ctx context.Context, msg *common.Message) error
}

// requestHandler runs each analysis request. With redis available, a claim
// on the message position keeps a redelivered copy from running in parallel
// with the original after a rebalance.
func requestHandler(svc requestRunner, claims *redis.Client, ttl time.Duration, logger logging.Logger) common.MessageHandler {
	return func(ctx context.Context, msg *common.Message) error {
		if claims != nil {
			key := claimKey(msg)
			claim, err := claims.TryClaim(ctx, key, ttl)
			switch {
			case err != nil:
				logger.Warn("claim failed, processing anyway", logging.String("key", key), logging.Err(err))
			case claim == nil:
				logger.Info("request already claimed, skipping", logging.String("key", key))
				return nil
			default:
				defer func() {
					if err := claim.Release(context.WithoutCancel(ctx)); err != nil {
						logger.Debug("claim release failed", logging.String("key", key), logging.Err(err))
					}
				}()
			}
		}
		return svc.HandleRequest(ctx, msg)
	}
}

func claimKey(msg *common.Message) string {
	return fmt.Sprintf("claim:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}

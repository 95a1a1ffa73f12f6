package rules

import (
	"errors"

	"oip/txguard/pkg/config"
)

// Build 按配置组装规则集，未启用的规则不参与评估
func Build(cfg config.RulesConfig, store HistoryStore, counter *Counter) (*RuleSet, error) {
	var enabled []Rule

	if cfg.LargeAmount.Enabled {
		enabled = append(enabled, NewLargeAmountRule(cfg.LargeAmount.Threshold))
	}
	if cfg.RapidTransactions.Enabled {
		if store == nil {
			return nil, errors.New("rapid_transactions rule requires a history store")
		}
		enabled = append(enabled, NewRapidTransactionRule(cfg.RapidTransactions.Threshold, store))
	}

	if counter == nil {
		counter = NewCounter()
	}
	return NewRuleSet(counter, enabled...), nil
}

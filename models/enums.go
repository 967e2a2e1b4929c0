package models

type AccountableType string

const (
	AccountableTypeDepository     AccountableType = "depository"
	AccountableTypeCreditCard     AccountableType = "credit_card"
	AccountableTypeLoan           AccountableType = "loan"
	AccountableTypeInvestment     AccountableType = "investment"
	AccountableTypeCrypto         AccountableType = "crypto"
	AccountableTypeProperty       AccountableType = "property"
	AccountableTypeVehicle        AccountableType = "vehicle"
	AccountableTypeOtherAsset     AccountableType = "other_asset"
	AccountableTypeOtherLiability AccountableType = "other_liability"
)

func (t AccountableType) IsValid() bool {
	switch t {
	case AccountableTypeDepository, AccountableTypeCreditCard, AccountableTypeLoan,
		AccountableTypeInvestment, AccountableTypeCrypto, AccountableTypeProperty,
		AccountableTypeVehicle, AccountableTypeOtherAsset, AccountableTypeOtherLiability:
		return true
	}
	return false
}

func (t AccountableType) Classification() AccountClassification {
	switch t {
	case AccountableTypeCreditCard, AccountableTypeLoan, AccountableTypeOtherLiability:
		return AccountClassificationLiability
	}
	return AccountClassificationAsset
}

// BalanceType says how a total splits into cash and non-cash.
func (t AccountableType) BalanceType() BalanceType {
	switch t {
	case AccountableTypeDepository, AccountableTypeCreditCard:
		return BalanceTypeCash
	case AccountableTypeInvestment:
		return BalanceTypeInvestment
	}
	return BalanceTypeNonCash
}

// TransactionsMovePrincipal is true when transactions change the non-cash side: loan payments
// reduce principal. Every other type books transactions as cash.
func (t AccountableType) TransactionsMovePrincipal() bool {
	return t == AccountableTypeLoan
}

// PrincipalOnly is true for debts whose balance is all principal. Their cash side stays at zero.
func (t AccountableType) PrincipalOnly() bool {
	return t == AccountableTypeLoan || t == AccountableTypeOtherLiability
}

type AccountClassification string

const (
	AccountClassificationAsset     AccountClassification = "asset"
	AccountClassificationLiability AccountClassification = "liability"
)

// FlowsFactor is +1 for assets and -1 for liabilities.
func (c AccountClassification) FlowsFactor() int {
	if c == AccountClassificationLiability {
		return -1
	}
	return 1
}

type BalanceType string

const (
	BalanceTypeCash       BalanceType = "cash"
	BalanceTypeInvestment BalanceType = "investment"
	BalanceTypeNonCash    BalanceType = "non_cash"
)

type AccountStatus string

const (
	AccountStatusActive          AccountStatus = "active"
	AccountStatusDraft           AccountStatus = "draft"
	AccountStatusDisabled        AccountStatus = "disabled"
	AccountStatusPendingDeletion AccountStatus = "pending_deletion"
)

type TransactionKind string

const (
	TransactionKindStandard      TransactionKind = "standard"
	TransactionKindFundsMovement TransactionKind = "funds_movement"
	TransactionKindCcPayment     TransactionKind = "cc_payment"
	TransactionKindLoanPayment   TransactionKind = "loan_payment"
	TransactionKindOneTime       TransactionKind = "one_time"
)

func (k TransactionKind) IsValid() bool {
	switch k {
	case TransactionKindStandard, TransactionKindFundsMovement, TransactionKindCcPayment,
		TransactionKindLoanPayment, TransactionKindOneTime:
		return true
	}
	return false
}

type ValuationKind string

const (
	ValuationKindReconciliation ValuationKind = "reconciliation"
	ValuationKindCurrentAnchor  ValuationKind = "current_anchor"
)

type TransferStatus string

const (
	TransferStatusPending  TransferStatus = "pending"
	TransferStatusMatched  TransferStatus = "matched"
	TransferStatusRejected TransferStatus = "rejected"
)

type CategoryClassification string

const (
	CategoryClassificationExpense CategoryClassification = "expense"
	CategoryClassificationIncome  CategoryClassification = "income"
)

type RuleResourceType string

const (
	RuleResourceTypeTransaction RuleResourceType = "transaction"
)

type ConditionType string

const (
	ConditionTypeCompound            ConditionType = "compound"
	ConditionTypeTransactionName     ConditionType = "transaction_name"
	ConditionTypeTransactionAmount   ConditionType = "transaction_amount"
	ConditionTypeTransactionMerchant ConditionType = "transaction_merchant"
)

type ConditionOperator string

const (
	ConditionOperatorLike  ConditionOperator = "like"
	ConditionOperatorEqual ConditionOperator = "="
	ConditionOperatorRegex ConditionOperator = "regex"
	ConditionOperatorGt    ConditionOperator = ">"
	ConditionOperatorGte   ConditionOperator = ">="
	ConditionOperatorLt    ConditionOperator = "<"
	ConditionOperatorLte   ConditionOperator = "<="
	ConditionOperatorAnd   ConditionOperator = "and"
	ConditionOperatorOr    ConditionOperator = "or"
)

type ActionType string

const (
	ActionTypeSetTransactionCategory ActionType = "set_transaction_category"
	ActionTypeSetTransactionTags     ActionType = "set_transaction_tags"
	ActionTypeSetTransactionMerchant ActionType = "set_transaction_merchant"
	ActionTypeSetTransactionName     ActionType = "set_transaction_name"
)

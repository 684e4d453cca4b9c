// Package pricing содержит правило применения индивидуальных политик
// к товарам каталога. Правило единое для выдачи каталога и расчёта заказов.
package pricing

import "github.com/smolin/lunchorder-system/internal/model"

// PolicyMap строит отображение productID -> политика. При дубликатах строк
// для одной пары побеждает первая встреченная.
func PolicyMap(policies []model.ProductPolicy) map[int64]*model.ProductPolicy {
	m := make(map[int64]*model.ProductPolicy, len(policies))
	for i := range policies {
		p := &policies[i]
		if _, ok := m[p.ProductID]; ok {
			continue
		}
		m[p.ProductID] = p
	}
	return m
}

// Effective возвращает действующую цену товара в копейках и признак скрытия.
// При отсутствии политики или переопределения действует цена каталога.
func Effective(product model.Product, policy *model.ProductPolicy) (int64, bool) {
	if policy == nil {
		return product.PriceCents, false
	}
	if policy.Hidden {
		return 0, true
	}
	if policy.PriceCents != nil {
		return *policy.PriceCents, false
	}
	return product.PriceCents, false
}

// Resolve применяет политики к списку товаров: скрытые исключаются,
// для остальных подставляется действующая цена. Порядок каталога сохраняется.
func Resolve(products []model.Product, policies []model.ProductPolicy) []model.Product {
	byProduct := PolicyMap(policies)

	res := make([]model.Product, 0, len(products))
	for _, p := range products {
		price, hidden := Effective(p, byProduct[p.ID])
		if hidden {
			continue
		}
		p.PriceCents = price
		res = append(res, p)
	}
	return res
}
